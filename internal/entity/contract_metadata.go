package entity

// ContractMetadata is the TZIP-16 document an indexer serves for a contract.
type ContractMetadata map[string]interface{}

func (c ContractMetadata) Version() string {
	for _, key := range []string{"version", "ver"} {
		if v, ok := c[key].(string); ok {
			return v
		}
	}
	return ""
}

func (c ContractMetadata) Interfaces() []string {
	raw, ok := c["interfaces"].([]interface{})
	if !ok {
		raw, _ = c["interface"].([]interface{})
	}

	interfaces := make([]string, 0, len(raw))
	for _, i := range raw {
		if s, ok := i.(string); ok {
			interfaces = append(interfaces, s)
		}
	}
	return interfaces
}
