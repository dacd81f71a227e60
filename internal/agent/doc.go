// Package agent contains yar's core (non-UI) logic.
//
// It resolves the model/provider configuration, opens the research cache and
// assembles the searcher, scraper and writer into a research.Orchestrator.
package agent
