// Package enrich defines the data model and collaborator interfaces shared by the
// content-acquisition pipeline: subjects, candidates, selection results and the
// fetch/extract/score/persist contracts that connect them.
package enrich
