// SPDX-License-Identifier: MIT

package flow

import "errors"

var (
	errUnaddressedSlot   = errors.New("flow: slot index not addressed by the slot map")
	errUnknownModel      = errors.New("flow: unknown scheduling model")
	errUnknownPolicy     = errors.New("flow: unknown full-queue policy")
	errDuplicateEdge     = errors.New("flow: edge already exists")
	errTransactionFailed = errors.New("flow: transaction returned failure")
)
