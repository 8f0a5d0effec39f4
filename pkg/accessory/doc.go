// Package accessory provides the top-level API for running the pairing
// side of a HomeKit accessory.
//
// It ties together the long-term identity, the setup code verifier, the
// controller registry, the connection table, the pairing handlers and the
// _hap._tcp advertisement.
//
// # Creating an Accessory
//
//	acc, err := accessory.New(accessory.Config{
//	    Name:      "Go Lamp",
//	    Category:  discovery.CategoryLightbulb,
//	    SetupCode: "031-45-154",
//	    Store:     storage.NewMemoryStore(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := acc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Setup URI:", acc.SetupURI())
//
// The accessory does not listen on the network itself. A transport
// (see package transport) accepts connections, opens a session per
// connection with OpenSession and routes request bodies to
// HandlePairSetup, HandlePairVerify and HandlePairings.
//
// # Persistence
//
// Identity, setup verifier, setup ID and paired controllers live in the
// configured storage.BlobStore and survive restarts. The identity is never
// regenerated while a controller is paired.
package accessory
