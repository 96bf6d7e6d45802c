// Package client implements the DataSource and DataSink library
// clients from spec §4.8: background-worker connections to a Data
// Server. DataSource exposes Add/Update and DataSink exposes a blocking
// Pop plus Get to the caller.
package client

import jsoniter "github.com/json-iterator/go"

// json stands in for the original's pickle: an arbitrary keyed set of
// Go values, serialized once per Update and deserialized once per Pop.
// json-iterator is the teacher's own serialization dependency
// (promoted here from an indirect require), used
// ConfigCompatibleWithStandardLibrary so payloads round-trip exactly
// like encoding/json would.
var json = jsoniter.ConfigCompatibleWithStandardLibrary
