// Package builtin provides the tools every kbagent conversation starts with:
// addResource (ingest into the knowledge base), getInformation (retrieve from
// it) and isHarmful (delegate to a pluggable Classifier).
package builtin
