// Package optimize implements the adaptive image optimization pipeline used
// when embedding product photos, logos and QR codes into generated order
// PDFs.
//
// The pipeline is deliberately lossy-aggressive: it classifies each image's
// content heuristically, plans target dimensions from content-type scaling
// factors and configured bounds, selects a target encoding, encodes with
// per-format per-content parameters, and validates the result. Failures and
// rejected results enter a five-tier degrading fallback chain (reduced
// quality, format conversion, dimension reduction, basic compression,
// original image) with per-tier retries and timeouts. The original-image
// tier is unconditionally accepted, so the per-image and batch entry points
// never return an error: callers always receive a result, degraded or
// placeholder if need be.
//
// Configuration is an immutable snapshot read per operation; hot reload
// swaps snapshots atomically. The reuse cache is best-effort: storage
// failures are logged and treated as misses, never surfaced.
package optimize
