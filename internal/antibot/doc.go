// Package antibot recognizes anti-bot responses and shapes outgoing requests
// to look like ordinary browser traffic.
//
// Classify is a pure function over a status code and a body. HeaderProvider
// rotates User-Agent strings from a fixed browser pool; its randomness is for
// traffic-shape variation only and is not cryptographic.
package antibot
