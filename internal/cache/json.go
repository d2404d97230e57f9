package cache

import jsoniter "github.com/json-iterator/go"

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

func jsonMarshal(v interface{}) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return jsonAPI.Unmarshal(data, v)
}
