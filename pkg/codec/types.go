package codec

// CapabilityConfiguration is sent by the host runtime to bind or unbind a
// module. Values carries provider-specific keys such as PORT and HOST.
type CapabilityConfiguration struct {
	Module string            `cbor:"module" json:"module"`
	Values map[string]string `cbor:"values" json:"values"`
}

// Request is the canonical HTTP request handed to a module.
type Request struct {
	Method      string            `cbor:"method" json:"method"`
	Path        string            `cbor:"path" json:"path"`
	QueryString string            `cbor:"query_string" json:"query_string"`
	Header      map[string]string `cbor:"header" json:"header"`
	Body        []byte            `cbor:"body" json:"body"`
}

// Response is the canonical HTTP response returned by a module.
// Status is the optional reason text; the bridge derives the status line
// from StatusCode alone.
type Response struct {
	StatusCode uint32            `cbor:"status_code" json:"status_code"`
	Status     string            `cbor:"status,omitempty" json:"status,omitempty"`
	Header     map[string]string `cbor:"header" json:"header"`
	Body       []byte            `cbor:"body" json:"body"`
}

// EncodeRequest serializes a canonical request.
func EncodeRequest(r *Request) ([]byte, error) {
	return Marshal(r)
}

// DecodeRequest deserializes a canonical request.
func DecodeRequest(data []byte) (*Request, error) {
	var r Request
	if err := Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodeResponse serializes a canonical response.
func EncodeResponse(r *Response) ([]byte, error) {
	return Marshal(r)
}

// DecodeResponse deserializes a canonical response.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodeConfiguration serializes a capability configuration.
func EncodeConfiguration(c *CapabilityConfiguration) ([]byte, error) {
	return Marshal(c)
}

// DecodeConfiguration deserializes a capability configuration.
func DecodeConfiguration(data []byte) (*CapabilityConfiguration, error) {
	var c CapabilityConfiguration
	if err := Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
