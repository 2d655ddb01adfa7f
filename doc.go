// Package jobcore implements a durable background job processing engine: a pluggable
// store, a submission client, a worker-pool processor with retry/continuation/batch
// semantics, a cron-driven recurrence engine, and a handler registry.
//
// A typical embedder wires the pieces together at startup:
//
//	store := jobcore.NewMemStorage()
//	registry := jobcore.NewHandlerRegistry()
//	jobcore.RegisterTyped(registry, "SendEmail", sendEmail)
//
//	client := jobcore.NewClient(store)
//	processor := jobcore.NewProcessor(store, registry, jobcore.WithLogger(logger))
//
//	if err := processor.Start(ctx); err != nil {
//	    return err
//	}
//	defer processor.Stop(context.Background())
//
//	jobID, err := client.Enqueue(ctx, "SendEmail", payload, 3)
package jobcore
