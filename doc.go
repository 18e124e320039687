// Package sitesync publishes a statically generated site to an
// S3-compatible object store.
//
// A publish run has three stages that run strictly in order:
//
//  1. Build: the site generator renders the content tree into an output
//     directory.
//  2. Plan: the output directory and the remote prefix are scanned and a
//     manifest of the assets that are new or changed is computed.
//  3. Sync: every manifest entry is uploaded, retrying transient failures.
//
// Publishing is additive. Objects that exist remotely but not locally are
// left alone and nothing is ever deleted. Running the pipeline twice
// against unchanged content uploads nothing the second time.
//
// Basic usage:
//
//	client, err := sitesync.NewStoreClient(ctx, target)
//	if err != nil {
//		return err
//	}
//
//	p, err := sitesync.New(target, client,
//		sitesync.WithContentDir("."),
//		sitesync.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//
//	report, err := p.Run(ctx)
//	os.Exit(report.ExitCode)
package sitesync
