// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestBuildString(t *testing.T) {
	tests := []struct {
		build Build
		want  string
	}{
		{Build{Version: "1.2.0", Revision: "abc1234", Built: "2026-10-01T00:00:00Z"}, "1.2.0 (abc1234, 2026-10-01T00:00:00Z)"},
		{Build{Version: "1.2.0", Revision: "abc1234", Modified: true}, "1.2.0 (abc1234-dirty, unknown)"},
		{Build{Version: "0.1.0-dev"}, "0.1.0-dev (unknown, unknown)"},
	}
	for _, test := range tests {
		if got := test.build.String(); got != test.want {
			t.Errorf("String() = %q, want %q", got, test.want)
		}
	}
}

func TestLinkerValuesWin(t *testing.T) {
	saved := []string{Revision, Modified, Built}
	t.Cleanup(func() { Revision, Modified, Built = saved[0], saved[1], saved[2] })

	Revision, Modified, Built = "0123456789abcdef", "false", "2026-10-01T00:00:00Z"
	build := Current()
	if build.Revision != "0123456789ab" || build.Modified || build.Built != Built {
		t.Errorf("Current() = %+v", build)
	}
	if got := Banner("commandroom"); !strings.HasPrefix(got, "commandroom "+Info()) || !strings.Contains(got, "Platform:") {
		t.Errorf("Banner() = %q", got)
	}
}
