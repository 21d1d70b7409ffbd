package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://store-exports/2024/Data File.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "store-exports", bucket)
	assert.Equal(t, "2024/Data File.xlsx", object)

	for _, bad := range []string{"", "store/file.xlsx", "gs://", "gs://bucket", "gs://bucket/", "gs:///object"} {
		_, _, err := ParseURI(bad)
		assert.ErrorIs(t, err, ErrInvalidURI, bad)
	}
}

func TestIsURI(t *testing.T) {
	assert.True(t, IsURI("gs://b/o"))
	assert.False(t, IsURI("/tmp/gs://b/o"))
	assert.False(t, IsURI("RFM_output_clean.xlsx"))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "rfm.xlsx", Filename("gs://bucket/exports/rfm.xlsx"))
	assert.Equal(t, "rfm.xlsx", Filename("gs://bucket/rfm.xlsx"))
	assert.Equal(t, "bucket", Filename("gs://bucket"))
}
