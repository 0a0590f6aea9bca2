// Package pagination fetches every page of a Clavis report endpoint.
//
// Report endpoints page with offset and page_size parameters and report the
// full result size in meta.total_record_count. The fetcher walks the offsets
// sequentially:
//
//	fetcher := pagination.NewFetcher(apiClient)
//	records, err := fetcher.FetchAll(ctx, pagination.EndpointProducts, payload, token)
//
// The fetcher:
//   - Seeds offset=0 and page_size=20000, then merges the caller payload
//   - Applies the endpoint's payload transform (kpi collapses report_date)
//   - Requests one page at a time, never in parallel
//   - Stops once offset >= total_record_count of the latest page
//   - Fails the whole fetch on the first bad page (no partial results)
//
// Pages are handed to a Sink. FetchAll collects them in memory; Stream accepts
// any Sink, e.g. NDJSONSink to write records out as they arrive.
package pagination
