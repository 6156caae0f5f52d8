// Package providers implements the external collaborators the pipeline steps
// call: source resolvers, speech-to-text, translation, speech synthesis and
// archive packaging. Registry selects one implementation per capability from
// configuration.
package providers
