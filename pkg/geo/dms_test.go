package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatLng(t *testing.T) {
	assert.Equal(t, "10°45'00.00\"N", Lat(10.75))
	assert.Equal(t, "106°40'30.00\"E", Lng(106.675))
	assert.Equal(t, "8°30'00.00\"S", Lat(-8.5))
	assert.Equal(t, "0°00'00.00\"N", Lat(0))
}

func TestDMS_SecondsCarry(t *testing.T) {
	// 0.9999999 degrees rounds up to a full degree
	assert.Equal(t, "1°00'00.00\"E", Lng(0.9999999))
}
