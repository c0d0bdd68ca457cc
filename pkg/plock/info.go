// SPDX-License-Identifier: Apache-2.0

package plock

import (
	"strconv"
	"strings"
	"time"
)

const (
	InvalidPID          = -1
	IdentifierSeparator = ":"
)

// Info defines the data model to describe a plock
type Info struct {
	Name         string
	PID          int
	WorkDir      string
	LockFilePath string
	PidFilePath  string
	ActivatedAt  *time.Time
}

// String returns string representation of the Info
// The representation is formatted to be self-descriptive with format as below:
// {name}:{PID}:{ActivatedAt}:{lockFilePath}
func (pli *Info) String() string {
	activatedAt := "-"
	if pli.ActivatedAt != nil {
		activatedAt = pli.ActivatedAt.Format(time.RFC3339)
	}

	return strings.Join([]string{
		pli.Name,
		strconv.Itoa(pli.PID),
		activatedAt,
		pli.LockFilePath,
	}, IdentifierSeparator)
}
