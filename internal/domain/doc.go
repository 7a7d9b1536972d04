// Package domain models disaster signals and correlated events.
//
// # Sources
//
// Signals are normalized from heterogeneous public feeds:
//
//	noaa   NWS active alerts, https://api.weather.gov/alerts/active (GeoJSON).
//	usgs   USGS earthquake summary feed (GeoJSON), past-week M2.5+ by default.
//	firms  NASA FIRMS active-fire detections (CSV), 24h MODIS product.
//	rss    News syndication feeds, disaster relevance decided by the classifier.
//	kafka  Externally collected signals published to a raw-signals topic.
//
// # Severity
//
// All sources map onto a four-level scale (minor, moderate, severe, extreme):
//
//	NWS:    the feed's own Severity property, lowercased ("Unknown" → "").
//	Quakes: <3.0 minor | <5.0 moderate | <6.5 severe | ≥6.5 extreme.
//	Fires:  detection confidence <40 minor | <60 moderate | <80 severe | ≥80 extreme.
//	News:   unrated; severity stays empty until corroborated by a rated source.
//
// # Event identity
//
// Event IDs are deterministic SHA-256 hashes of category|geocell|hour-bucket,
// where the geocell rounds coordinates to a ~25km grid. Independent reports of
// the same occurrence key to the same Event, which makes upserts idempotent
// and replays safe. See [EventKey].
//
// # Risk scoring
//
// Events carry a risk level (LOW, MODERATE, HIGH, EXTREME), an urgency band
// derived from event age (IMMEDIATE <1h, HIGH <6h, MEDIUM <24h, LOW otherwise),
// an estimated impact radius, and a composite threat score in [0,100]:
//
//	threat = 0.7*risk + 0.3*urgency
//
// with risk mapped through {10, 30, 70, 100} and urgency through
// {40, 30, 20, 10}. The score exists to order the serving layer's output, not
// to carry physical meaning.
package domain
