package column

import (
	"encoding/binary"

	"github.com/pgframe/pgframe/dataframe"
	"github.com/pgframe/pgframe/pgerr"
)

// decodeTextArray parses the PostgreSQL binary 1-D text[] layout:
//
//	ndim:i32, has_null:i32, element_oid:i32,
//	then ndim dimensions of (dim_len:i32, lower_bound:i32),
//	then dim_len elements of (item_len:i32, item_len bytes), item_len==-1 is null.
//
// Only ndim ∈ {0, 1} is supported; ndim == 0 decodes to an empty slice.
func decodeTextArray(body []byte) ([]dataframe.NullableText, error) {
	if len(body) < 4 {
		return nil, pgerr.New(pgerr.NotEnoughBytes, "array payload too short for ndim")
	}
	ndim := int32(binary.BigEndian.Uint32(body[0:4]))
	body = body[4:]

	if ndim == 0 {
		return []dataframe.NullableText{}, nil
	}
	if ndim != 1 {
		return nil, pgerr.New(pgerr.OnlyOneDimensionArraySupported, "array has more than one dimension")
	}

	if len(body) < 16 {
		return nil, pgerr.New(pgerr.NotEnoughBytes, "array payload too short for header")
	}
	// has_null (4 bytes), element_oid (4 bytes) — not needed for decoding.
	body = body[8:]
	dimLen := int32(binary.BigEndian.Uint32(body[0:4]))
	// lower_bound (4 bytes) — not needed for decoding.
	body = body[8:]

	values := make([]dataframe.NullableText, 0, dimLen)
	for i := int32(0); i < dimLen; i++ {
		if len(body) < 4 {
			return nil, pgerr.New(pgerr.NotEnoughBytes, "array payload truncated before item length")
		}
		itemLen := int32(binary.BigEndian.Uint32(body[0:4]))
		body = body[4:]
		if itemLen == -1 {
			values = append(values, dataframe.NullableText{Valid: false})
			continue
		}
		if int32(len(body)) < itemLen {
			return nil, pgerr.New(pgerr.NotEnoughBytes, "array payload truncated mid-element")
		}
		values = append(values, dataframe.NullableText{Value: string(body[:itemLen]), Valid: true})
		body = body[itemLen:]
	}
	return values, nil
}
