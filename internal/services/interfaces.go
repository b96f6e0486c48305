package services

import (
	"context"

	"mol-collab/internal/models"
)

/*
LEARNING: GO INTERFACE BEST PRACTICE

"Accept interfaces, return structs" - Rob Pike

Key Principle: Interfaces should be defined where they are USED, not where implemented.

Why?
1. Consumer-driven design: The user of the dependency defines what it needs
2. Smaller, focused interfaces: Only declare methods you actually use
3. No circular dependencies: Implementation doesn't know about interface
4. Better testability: Easy to mock exactly what you need

This package (services) is the CONSUMER of the repository, so the
interface goes here, not in the repository package.
*/

// RecordingRepository defines what the archiver needs from durable
// storage. repository.RecordingRepositoryImpl satisfies it; tests use
// an in-memory fake.
type RecordingRepository interface {
	Save(ctx context.Context, rec *models.Recording) error
}
