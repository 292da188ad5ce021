package contract

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockGitClient is a mock type for the GitClient type.
type MockGitClient struct {
	mock.Mock
}

var _ GitClient = &MockGitClient{} // Compile-time check

// Run implements the GitClient interface.
func (m *MockGitClient) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	var mockArgs []any
	mockArgs = append(mockArgs, ctx, repoPath)
	for _, arg := range args {
		mockArgs = append(mockArgs, arg)
	}
	ret := m.Called(mockArgs...)
	output, _ := ret.Get(0).([]byte)
	return output, ret.Error(1)
}

// Checkout implements the GitClient interface.
func (m *MockGitClient) Checkout(ctx context.Context, repoPath string, ref string) error {
	ret := m.Called(ctx, repoPath, ref)
	return ret.Error(0)
}

// GetRepoHash implements the GitClient interface.
func (m *MockGitClient) GetRepoHash(ctx context.Context, repoPath string) (string, error) {
	ret := m.Called(ctx, repoPath)
	hash, _ := ret.Get(0).(string)
	return hash, ret.Error(1)
}

// ResolveRef implements the GitClient interface.
func (m *MockGitClient) ResolveRef(ctx context.Context, repoPath string, ref string) (string, error) {
	ret := m.Called(ctx, repoPath, ref)
	hash, _ := ret.Get(0).(string)
	return hash, ret.Error(1)
}

// GetLastCommitMessage implements the GitClient interface.
func (m *MockGitClient) GetLastCommitMessage(ctx context.Context, repoPath string) (string, error) {
	ret := m.Called(ctx, repoPath)
	msg, _ := ret.Get(0).(string)
	return msg, ret.Error(1)
}

// GetChangedFiles implements the GitClient interface.
func (m *MockGitClient) GetChangedFiles(ctx context.Context, repoPath string, commit string) ([]string, error) {
	ret := m.Called(ctx, repoPath, commit)
	files, _ := ret.Get(0).([]string)
	return files, ret.Error(1)
}

// MockProcessRunner is a mock type for the ProcessRunner type.
type MockProcessRunner struct {
	mock.Mock
}

var _ ProcessRunner = &MockProcessRunner{} // Compile-time check

// Run implements the ProcessRunner interface.
func (m *MockProcessRunner) Run(ctx context.Context, inv Invocation) (InvocationResult, error) {
	ret := m.Called(ctx, inv)
	res, _ := ret.Get(0).(InvocationResult)
	return res, ret.Error(1)
}
