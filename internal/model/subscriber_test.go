package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttributesScan(t *testing.T) {
	var a Attributes
	require.NoError(t, a.Scan([]byte(`{"plan":"pro"}`)))
	require.Equal(t, "pro", a["plan"])

	var empty Attributes
	require.NoError(t, empty.Scan(nil))
	require.Nil(t, empty)

	var fromStr Attributes
	require.NoError(t, fromStr.Scan(`{"k":"v"}`))
	require.Equal(t, "v", fromStr["k"])

	require.Error(t, a.Scan(42))
}

func TestAttributesValue(t *testing.T) {
	v, err := Attributes(nil).Value()
	require.NoError(t, err)
	require.Equal(t, []byte("{}"), v)

	v, err = Attributes{"a": "b"}.Value()
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"b"}`, string(v.([]byte)))
}

func TestTagsRoundtrip(t *testing.T) {
	v, err := Tags{"x", "y"}.Value()
	require.NoError(t, err)

	var back Tags
	require.NoError(t, back.Scan(v))
	require.Equal(t, Tags{"x", "y"}, back)
}

func TestCampaignStatus(t *testing.T) {
	require.True(t, CampaignDraft.Valid())
	require.True(t, CampaignDraft.Editable())
	require.False(t, CampaignSending.Editable())
	require.False(t, CampaignStatus("bogus").Valid())
}
