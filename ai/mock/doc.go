// Package mock provides test double implementations of the ai interfaces.
//
// The mocks let tests run without an embedding server and give controlled,
// deterministic vectors.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//
//	count := embedder.CallCount()
//
// # Default Behavior
//
// MockEmbedder hashes the words of each text into a unit-length vector, so
// texts that share vocabulary have a high dot product.
package mock
