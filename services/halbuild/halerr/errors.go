// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package halerr defines the error taxonomy surfaced by a manifest sync run.
//
// Lower layers return sentinel or typed errors of their own. The sync
// orchestrator classifies them into one Kind and attaches the remediation
// an operator needs, so the CLI can print an actionable notice and pick an
// exit code without inspecting error strings.
package halerr

import (
	"errors"
	"strings"
)

// Kind classifies a failure. Values are stable strings for logs and JSON.
type Kind string

const (
	// KindConfiguration means required build context is missing or invalid.
	KindConfiguration Kind = "CONFIGURATION"

	// KindDiscovery means the interface tree or a requested package could
	// not be found or read.
	KindDiscovery Kind = "DISCOVERY"

	// KindInvalidPackageName means a user-supplied package id is malformed.
	KindInvalidPackageName Kind = "INVALID_PACKAGE_NAME"

	// KindSpecParse means an interface spec file could not be parsed.
	KindSpecParse Kind = "SPEC_PARSE"

	// KindTemplate means the manifest template left a placeholder unresolved.
	KindTemplate Kind = "TEMPLATE"

	// KindUnacknowledgedLock means no manifest changed but the review lock
	// from an earlier run is still present.
	KindUnacknowledgedLock Kind = "UNACKNOWLEDGED_LOCK"

	// KindIO means reading or writing a manifest failed.
	KindIO Kind = "IO"

	// KindUnknown is reported for errors outside the taxonomy.
	KindUnknown Kind = "UNKNOWN"
)

// Process exit codes shared by every halbuild command.
const (
	ExitClean          = 0
	ExitDirty          = 1
	ExitUnacknowledged = 2
	ExitFailure        = 3
	ExitUsage          = 4
)

// Error is a classified failure with operator remediation.
//
// # Example
//
//	err := halerr.New(halerr.KindDiscovery, "lookup", "nfc@1.0", catalog.ErrPackageNotFound,
//	    "verify hardware/interfaces/nfc/1.0 exists")
//	fmt.Println(err) // "lookup nfc@1.0: package not found"
//
//	if halerr.KindOf(err) == halerr.KindDiscovery { ... }
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Op names the phase that failed ("discover", "render", "write", ...).
	Op string

	// Subject is the package id or path the failure concerns. May be empty.
	Subject string

	// Remediation lists the steps that resolve the failure, in order.
	Remediation []string

	// Err is the underlying cause.
	Err error
}

// New builds an Error.
func New(kind Kind, op, subject string, err error, remediation ...string) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err, Remediation: remediation}
}

// Error returns "<op> <subject>: <cause>", dropping empty parts.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Subject != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Subject)
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return strings.ToLower(string(e.Kind))
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, so callers may write
// errors.Is(err, &halerr.Error{Kind: halerr.KindTemplate}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RemediationOf returns the remediation steps attached to err, if any.
func RemediationOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Remediation
	}
	return nil
}

// ExitCode maps err to a process exit code.
//
// A nil error is ExitClean. Dirty runs are not errors; callers report
// ExitDirty themselves.
func ExitCode(err error) int {
	switch KindOf(err) {
	case "":
		return ExitClean
	case KindUnacknowledgedLock:
		return ExitUnacknowledged
	case KindInvalidPackageName:
		return ExitUsage
	default:
		return ExitFailure
	}
}
