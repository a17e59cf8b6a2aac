// SPDX-License-Identifier: MIT

package buffer

import "github.com/flowforge/mediaflow/internal/errs"

func errOutOfMemory(op string, cause error) error {
	return errs.NewOutOfMemory(op, cause)
}

func errInvalidParam(op string, cause error) error {
	return errs.NewInvalidParam(op, cause)
}
