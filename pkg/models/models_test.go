package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank_Ordering(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
}

func TestSeverityAtLeast(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityMedium.AtLeast(SeverityHigh))
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		raw  string
		want Severity
	}{
		{"low", SeverityLow},
		{"HIGH", SeverityHigh},
		{"  critical ", SeverityCritical},
		{"info", SeverityLow},
		{"major", SeverityHigh},
		{"nonsense", SeverityMedium},
		{"", SeverityMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSeverity(tt.raw), "raw=%q", tt.raw)
	}
}

func TestTimelineSeverity_CriticalProjectsAsHigh(t *testing.T) {
	assert.Equal(t, EventSeverityHigh, SeverityCritical.TimelineSeverity())
	assert.Equal(t, EventSeverityHigh, SeverityHigh.TimelineSeverity())
	assert.Equal(t, EventSeverityMedium, SeverityMedium.TimelineSeverity())
	assert.Equal(t, EventSeverityLow, SeverityLow.TimelineSeverity())
}

func TestFileTypeValid(t *testing.T) {
	assert.True(t, FileTypeTerraform.Valid())
	assert.True(t, FileTypeKubernetes.Valid())
	assert.False(t, FileType("ansible").Valid())
	assert.False(t, FileType("").Valid())
}
