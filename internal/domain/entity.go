package domain

// Entity is a labeled on-chain address (exchange wallet, known whale, ...).
type Entity struct {
	Address    string
	Chain      string
	Label      *string
	EntityType *string
	IsCEX      bool
	Meta       map[string]any
}
