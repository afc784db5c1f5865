package apkg

// CollectionPath exposes the temporary database path to tests.
func CollectionPath(c *Collection) string { return c.path }
