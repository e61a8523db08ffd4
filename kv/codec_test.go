package kv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	tests := []struct {
		name    string
		data    []byte
		wantEnc contentEncoding
	}{
		{
			name:    "small value stays uncompressed",
			data:    []byte(`{"timezone":"UTC"}`),
			wantEnc: encIdentity,
		},
		{
			name:    "empty value",
			data:    []byte{},
			wantEnc: encIdentity,
		},
		{
			name:    "large compressible value gets compressed",
			data:    []byte(`[` + strings.Repeat(`{"title":"docs","url":"https://example.com"},`, 200) + `null]`),
			wantEnc: encZstd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Encode(tt.data)
			require.NoError(t, err)

			r, err := parseRecord(data)
			require.NoError(t, err)
			require.EqualValues(t, recordVersion, r.version)
			require.Equal(t, tt.wantEnc, r.encoding)
			require.EqualValues(t, len(tt.data), r.size)

			decoded, err := codec.Decode(data)
			require.NoError(t, err)
			require.Equal(t, tt.data, decoded)
		})
	}
}

func TestCodec_IncompressibleValueStaysIdentity(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	randomish := make([]byte, 3000)
	for i := range randomish {
		randomish[i] = byte((i*7919 + i/3) % 251)
	}

	record, err := codec.Encode(randomish)
	require.NoError(t, err)

	decoded, err := codec.Decode(record)
	require.NoError(t, err)
	require.Equal(t, randomish, decoded)
}

func TestCodec_DetectsCorruption(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	data, err := codec.Encode([]byte(`{"count":42}`))
	require.NoError(t, err)

	data[len(data)-2] ^= 0xff

	_, err = codec.Decode(data)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestCodec_ShortRecord(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	data, err := codec.Encode([]byte(`{"count":42}`))
	require.NoError(t, err)

	for _, b := range [][]byte{nil, {0x01, 0x00}, data[:len(data)/2]} {
		_, err = codec.Decode(b)
		require.ErrorIs(t, err, ErrCorrupted)
	}
}

func TestCodec_SkipsUnknownFields(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	data, err := codec.Encode([]byte(`"hello"`))
	require.NoError(t, err)

	data = protowire.AppendTag(data, 99, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("future"))

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	require.Equal(t, []byte(`"hello"`), decoded)
}

func TestCodec_RejectsMismatchedHeader(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	value := []byte(`{"count":42}`)
	digest := blake3.Sum256(value)
	valid := record{version: recordVersion, digest: digest[:], size: uint64(len(value)), payload: value}

	wrongSize := valid
	wrongSize.size++
	_, err = codec.Decode(wrongSize.marshal())
	require.ErrorIs(t, err, ErrCorrupted)

	oversized := valid
	oversized.size = MaxValueSize + 1
	_, err = codec.Decode(oversized.marshal())
	require.ErrorIs(t, err, ErrDecompressionBomb)

	future := valid
	future.version = recordVersion + 1
	_, err = codec.Decode(future.marshal())
	require.Error(t, err)

	unknownEnc := valid
	unknownEnc.encoding = 7
	_, err = codec.Decode(unknownEnc.marshal())
	require.Error(t, err)

	decoded, err := codec.Decode(valid.marshal())
	require.NoError(t, err)
	require.Equal(t, value, decoded)
}

func TestCodec_RejectsOversizedValue(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	_, err = codec.Encode(make([]byte, MaxValueSize+1))
	require.ErrorIs(t, err, ErrValueTooLarge)
}
