package polyline_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windgrid/windgrid/pkg/polyline"
)

// Google's reference example.
const googleExample = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

var googleLine = orb.LineString{
	{-120.2, 38.5},
	{-120.95, 40.7},
	{-126.453, 43.252},
}

func TestEncode(t *testing.T) {
	assert.Equal(t, googleExample, polyline.Encode(googleLine))
	assert.Equal(t, "_p~iF~ps|U", polyline.Encode(googleLine[:1]))
	assert.Equal(t, "", polyline.Encode(nil))
}

func TestDecode(t *testing.T) {
	ls, err := polyline.Decode(googleExample)
	require.NoError(t, err)
	require.Len(t, ls, 3)

	for i, p := range ls {
		assert.InDelta(t, googleLine[i].Lat(), p.Lat(), 1e-5)
		assert.InDelta(t, googleLine[i].Lon(), p.Lon(), 1e-5)
	}

	ls, err = polyline.Decode("")
	require.NoError(t, err)
	assert.Nil(t, ls)
}

func TestDecode_Truncated(t *testing.T) {
	// Latitude only, no longitude.
	_, err := polyline.Decode("_p~iF")
	assert.ErrorIs(t, err, polyline.ErrTruncated)

	// Continuation bit set on the last byte.
	_, err = polyline.Decode("_p~iF~ps|")
	assert.ErrorIs(t, err, polyline.ErrTruncated)
}

func TestRoundTrip_AcrossAntimeridian(t *testing.T) {
	trail := orb.LineString{{179.5, -10.25}, {181.25, -10.5}, {183.12345, -11}}

	for _, precision := range []int{5, 6} {
		ls, err := polyline.DecodePrecision(polyline.EncodePrecision(trail, precision), precision)
		require.NoError(t, err)
		require.Len(t, ls, len(trail))
		for i := range trail {
			assert.InDelta(t, trail[i].Lon(), ls[i].Lon(), 1e-5)
			assert.InDelta(t, trail[i].Lat(), ls[i].Lat(), 1e-5)
		}
	}
}

func TestLength(t *testing.T) {
	assert.Equal(t, 0.0, polyline.Length(orb.LineString{{0, 0}}))

	// One degree of latitude is about 111 km.
	assert.InDelta(t, 111_195, polyline.Length(orb.LineString{{0, 0}, {0, 1}}), 500)
}
