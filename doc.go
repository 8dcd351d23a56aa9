// Package census runs a health census over a peer-advertised network.
//
// Nodes announce themselves on an advertisement substrate under the public key
// of the state they are in (see package advertise). A census looks up every
// tracked state, counts the nodes behind each key, and checks the counts
// against a population policy.
//
// # Quick Start
//
//	client := advertise.NewNATS(advertise.NATSConfig{
//	    NATSURLs: []string{"nats://localhost:4222"},
//	})
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	cycle, err := census.NewCycle(census.Config{
//	    States: []census.TrackedState{
//	        {Name: "twopercent", Key: twopercentKey},
//	        {Name: "canonical", Key: canonicalKey},
//	        {Name: "acceptdonation", Key: acceptdonationKey},
//	    },
//	    Policy: census.HistoricalPolicy(),
//	}, client)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	outcome := cycle.Run(ctx)
//	fmt.Println(outcome.Subject())
//
// # Outcomes
//
// Every cycle ends in exactly one of three outcomes:
//
//   - OutcomeHealthy: the census completed and every state is within its bound
//   - OutcomeAlert: the census completed and at least one state is out of bounds
//   - OutcomeFailure: a lookup failed, so no report was produced at all
//
// A failed lookup is never counted as zero members: an empty state and an
// unreachable substrate are different things.
//
// # Precedence
//
// "Too many" bounds are checked in policy order, then "too few" bounds. The
// primary violation of an Alert is the last "too few" found, or, failing that,
// the last "too many". In ModeAll the Alert also lists every other violation;
// ModeLegacy keeps only the primary one.
package census
