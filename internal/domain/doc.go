// Package domain holds the hydrological processing core: time axis decoding,
// sub-daily to daily aggregation, annual maxima extraction and the Gumbel
// Type I return-period estimator, together with the storage ports the
// adapters implement.
//
// # Data Sources
//
// Hourly runoff comes from ERA5 single-level files, one file per day named
// era5_Ro1_YYYYMMDD.nc, each holding the RO variable on (time, lat, lon).
// Daily streamflow comes from RAPID historical simulations (Qout files), one
// per region, holding Qout on either (time, rivid) or (rivid, time).
//
// # Time Conventions
//
// Time axes follow CF: a numeric variable with a units attribute of the form
//
//	"<unit> since <epoch>"  ->  e.g. "hours since 1900-01-01 00:00:00"
//
// and an optional calendar attribute (standard, gregorian and
// proleptic_gregorian are accepted; all are decoded on the proleptic
// Gregorian calendar in UTC).
//
// Hourly samples are stamped at the end of their accumulation interval, so
// the 24 samples of a day D are D 01:00 through D+1 00:00. A daily aggregate
// is tagged with D 00:00.
//
// # Failure Model
//
// Missing timestamps are never filled. A day with any absent sample fails
// with [MissingSampleError] before any field is read. A unit with fewer than
// two annual maxima fails with [InsufficientSampleError]. A streamflow
// variable whose dimensions are neither (time, unit) nor (unit, time) fails
// with [UnrecognizedLayoutError].
//
// # Gumbel Estimator
//
// With sample mean x and Bessel-corrected standard deviation s of the annual
// maxima, the T-year estimate is
//
//	-ln(-ln(1 - 1/T)) * s * 0.7797 + x - 0.45 * s
//
// for T > 1. Estimates are not clipped to non-negative values.
package domain
