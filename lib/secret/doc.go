// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials that must not outlive their use:
// login passwords, access tokens, recovery keys, and the private halves
// of device keys.
//
// A [Buffer] lives in an anonymous mmap region outside the Go heap. The
// region is mlocked so it never reaches swap and is marked
// MADV_DONTDUMP so it never reaches a core dump. Close zeroes the
// region before unmapping it; any read after Close panics.
//
// [Zero] scrubs ordinary heap slices that briefly carried secret bytes
// (a line read from stdin, a decrypted payload) once their contents
// have been copied into a Buffer.
package secret
