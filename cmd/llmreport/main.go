// Command llmreport turns free-text report requests into rendered documents
// by decomposing them into sections and generating each section with an LLM.
package main

func main() {
	Execute()
}
