/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched (via errors.Is) by errors reporting a missing record.
var ErrNotFound = errors.New("artemis-zoo/store: animal not found")

// NotFoundError describes a lookup by name that matched no record.
type NotFoundError struct {
	Name string
}

// Error implements Go's error interface.
func (err *NotFoundError) Error() string {
	return fmt.Sprintf(`animal "%s" not found`, err.Name)
}

// Is makes errors.Is(err, ErrNotFound) report true.
func (err *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
