package domain

// KeyPrefix namespaces every key neardup writes to the key-value store.
const KeyPrefix = "neardup:"
