// Copyright 2026 forkfuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tool

import (
	"fmt"
	"strconv"
	"strings"
)

// ListFlag collects values of a flag that may be repeated and/or contain
// comma-separated lists: "-x a.dict -x b.dict,c.dict".
type ListFlag []string

func (list *ListFlag) String() string {
	return strings.Join(*list, ",")
}

func (list *ListFlag) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			return fmt.Errorf("empty value in %q", value)
		}
		*list = append(*list, v)
	}
	return nil
}

// OptionalInt64 is an integer flag that remembers whether it was set.
type OptionalInt64 struct {
	Val   int64
	IsSet bool
}

func (v *OptionalInt64) String() string {
	if !v.IsSet {
		return ""
	}
	return strconv.FormatInt(v.Val, 10)
}

func (v *OptionalInt64) Set(value string) error {
	val, err := strconv.ParseInt(value, 0, 64)
	if err != nil {
		return err
	}
	v.Val, v.IsSet = val, true
	return nil
}

// Ptr returns nil if the flag was not set.
func (v *OptionalInt64) Ptr() *int64 {
	if !v.IsSet {
		return nil
	}
	val := v.Val
	return &val
}
