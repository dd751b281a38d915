package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSplitPart(t *testing.T) {
	part, err := GetSplitPart("/offers?product=3188378&sort=new", "product=", 1)
	assert.NoError(t, err)
	assert.Equal(t, "3188378&sort=new", part)

	part, err = GetSplitPart(part, "&", 0)
	assert.NoError(t, err)
	assert.Equal(t, "3188378", part)

	_, err = GetSplitPart("/offers", "product=", 1)
	assert.Error(t, err)
}
