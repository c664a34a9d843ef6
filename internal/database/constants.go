package database

// Distance metrics for embedding comparison
const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
)

// FaceEmbeddingDim is the dimension of face embeddings produced by buffalo_l/ResNet100
const FaceEmbeddingDim = 512

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after distance filtering.
	HNSWSearchMultiplier = 3
)
