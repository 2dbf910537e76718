package config_test

import (
	"fmt"

	"github.com/ajitpratap0/nebula-hubspot/pkg/config"
)

// ExampleConfig_ApplyDefaults demonstrates the defaults of a minimal
// configuration.
func ExampleConfig_ApplyDefaults() {
	cfg := config.Config{Parameters: config.Parameters{APIToken: "token"}}
	cfg.ApplyDefaults()

	fmt.Printf("Endpoints: %v\n", cfg.Parameters.Endpoints)
	fmt.Printf("Max retries: %d\n", cfg.Parameters.Advanced.MaxRetries)
	fmt.Printf("Buffer: %s\n", cfg.Parameters.Advanced.BufferSize.String())

	// Output:
	// Endpoints: [companies deals]
	// Max retries: 10
	// Buffer: 8KB
}

// ExampleConfig_Validate shows the error returned for a missing token.
func ExampleConfig_Validate() {
	cfg := config.Config{}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
	}

	// Output:
	// config: invalid configuration: Config.Parameters.APIToken (required_unless)
}

// ExampleParseProperties shows how property lists are normalized.
func ExampleParseProperties() {
	fmt.Println(config.ParseProperties("name , phone,,name"))

	// Output:
	// [name phone]
}
