// Package engine contains the simulation loop of the digital twin.
//
// The tick itself is the pure function Step: it takes a State and returns the
// next State. The Ticker is the external scheduler that invokes it, and the
// Engine owns the live State, region selection and event emission.
package engine
