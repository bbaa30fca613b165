/*
NAME
  splverrors.go

DESCRIPTION
  splverrors.go defines the sentinel error taxonomy shared by the splv
  codec and container packages. Call sites wrap these with
  github.com/pkg/errors so a caller can both errors.Is against the
  taxonomy and inspect the underlying cause.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package splverrors defines the error taxonomy used throughout the splv
// codec and container packages.
package splverrors

import "errors"

// Sentinel errors. Success is represented by a nil error, so there is no
// ErrSuccess.
var (
	ErrInvalidArguments = errors.New("splv: invalid arguments")
	ErrInvalidInput     = errors.New("splv: invalid input")
	ErrOutOfMemory      = errors.New("splv: out of memory")
	ErrFileOpen         = errors.New("splv: failed to open file")
	ErrFileRead         = errors.New("splv: failed to read file")
	ErrFileWrite        = errors.New("splv: failed to write file")
	ErrRuntime          = errors.New("splv: runtime error")
	ErrInternal         = errors.New("splv: internal error")
	ErrThreading        = errors.New("splv: threading error")
)
