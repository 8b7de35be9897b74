// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package errutil

import "github.com/samber/oops"

// Code returns the oops error code carried by err, or "" when there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
