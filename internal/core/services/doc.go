// Package services implements the driving port interfaces.
//
// Services hold the retrieval and access-control logic: the access gate,
// semantic and hybrid retrievers, the re-ranker, the safety filter and the
// query pipeline that enforces classification before anything is
// generated or returned. They reach storage, models and the audit log only
// through driven ports.
package services
