package types

// Attribute is a key/value log entry attached to a response.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewAttribute(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// HandleResponse is what every state-changing handler returns: the ordered messages for the
// host to execute and the log attributes describing the call.
type HandleResponse struct {
	Messages []CosmosMsg `json:"messages"`
	Log      []Attribute `json:"log"`
	Data     []byte      `json:"data,omitempty"`
}

type InitResponse struct {
	Messages []CosmosMsg `json:"messages"`
	Log      []Attribute `json:"log"`
}

type MigrateResponse struct {
	Messages []CosmosMsg `json:"messages"`
	Log      []Attribute `json:"log"`
}

// Attr returns the value of the first attribute with the given key.
func (r HandleResponse) Attr(key string) (string, bool) {
	for _, a := range r.Log {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
