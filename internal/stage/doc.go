// Package stage defines the contract every pipeline step handler implements
// and the Env through which handlers read upstream artifacts and publish
// their outputs.
package stage
