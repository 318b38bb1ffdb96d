package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCurrentVersionUsesDevVersionInDevAndDemoModes(t *testing.T) {
	orig, origDev := Version, DevVersion
	defer func() { Version, DevVersion = orig, origDev }()
	Version, DevVersion = "1.2.3", "1.2.3-dev"

	assert.Equal(t, "1.2.3-dev", GetCurrentVersion("dev"))
	assert.Equal(t, "1.2.3-dev", GetCurrentVersion("demo"))
	assert.Equal(t, "1.2.3", GetCurrentVersion("prod"))
}

func TestGetMinorVersionExtractsMajorMinor(t *testing.T) {
	assert.Equal(t, "0.25", GetMinorVersion("0.25.1"))
	assert.Equal(t, "", GetMinorVersion("0"))
}

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	assert.True(t, IsVersionGreaterOrEqualThan("1.2.0", "1.1.9"))
	assert.True(t, IsVersionGreaterOrEqualThan("1.2.0", "1.2.0"))
	assert.False(t, IsVersionGreaterOrEqualThan("1.1.0", "1.2.0"))
}

func TestIsVersionGreaterThan(t *testing.T) {
	assert.True(t, IsVersionGreaterThan("1.2.1", "1.2.0"))
	assert.False(t, IsVersionGreaterThan("1.2.0", "1.2.0"))
}

func TestSortVersionOrdersAscending(t *testing.T) {
	versions := SortVersion{"1.2.0", "0.9.5", "1.10.0"}
	assert.False(t, versions.Less(0, 1))
	assert.True(t, versions.Less(1, 0))
	assert.True(t, versions.Less(0, 2))
}

func TestStringAppendsShortCommitWhenKnown(t *testing.T) {
	origV, origC := Version, GitCommit
	defer func() { Version, GitCommit = origV, origC }()
	Version, GitCommit = "1.0.0", "abcdef1234567890"

	assert.Equal(t, "1.0.0-abcdef12", String())
}

func TestStringOmitsCommitWhenUnknown(t *testing.T) {
	origV, origC := Version, GitCommit
	defer func() { Version, GitCommit = origV, origC }()
	Version, GitCommit = "1.0.0", "unknown"

	assert.Equal(t, "1.0.0", String())
}

func TestStringFullIncludesAllKnownFields(t *testing.T) {
	origV, origC, origB, origT := Version, GitCommit, GitBranch, BuildTime
	defer func() { Version, GitCommit, GitBranch, BuildTime = origV, origC, origB, origT }()
	Version, GitCommit, GitBranch, BuildTime = "1.0.0", "abcdef1234567890", "main", "2026-01-01T00:00:00Z"

	full := StringFull()
	assert.Contains(t, full, "Version=1.0.0")
	assert.Contains(t, full, "Commit=abcdef12")
	assert.Contains(t, full, "Branch=main")
	assert.Contains(t, full, "BuildTime=2026-01-01T00:00:00Z")
}
