// Command libspotit is the C ABI of the symbol detector. Build it with
//
//	go build -buildmode=c-shared -o libspotit.so ./cmd/libspotit
//
// which also writes libspotit.h with the prototypes below.
//
//	const char *spotitml_get_system_status(void);
//	uint64_t    spotitml_init_detector(const char *model_path);
//	void        spotitml_free_detector(uint64_t handle);
//	const char *spotitml_detect_symbols(uint64_t handle, const uint8_t *data, size_t length,
//	                                    int32_t width, int32_t height, int32_t channels);
//	char       *spotitml_detect_symbols_alloc(uint64_t handle, const uint8_t *data, size_t length,
//	                                          int32_t width, int32_t height, int32_t channels);
//	void        spotitml_free_memory(void *ptr);
//	void        spotitml_set_log_callback(spotitml_log_callback cb);
//	const char *spotitml_get_last_error(void);
//	const char *spotitml_get_last_status(void);
//	const char *spotitml_get_version(void);
//	const char *spotitml_get_metrics(void);
//	void        spotitml_release_thread(void);
//	void        spotitml_shutdown(void);
//
// Ownership:
//
//   - const char* results are owned by the library. Each stays valid until
//     the same function is called again on the same thread, or until
//     spotitml_shutdown. Copy it out before that.
//   - spotitml_get_version returns a static string.
//   - spotitml_detect_symbols_alloc returns a malloc'd copy owned by the
//     caller, released with spotitml_free_memory.
//   - Image buffers are borrowed for the duration of the call only.
//   - Each calling thread keeps its last error, its last status and up to
//     five returned strings until spotitml_shutdown. A host that retires
//     threads calls spotitml_release_thread on each before it exits;
//     strings returned to that thread become invalid.
//
// Failures return NULL (or handle 0); spotitml_get_last_error on the same
// thread then describes the failure. A successful call clears it.
// spotitml_get_system_status never returns NULL.
//
// The log callback is invoked synchronously on the thread that logged. It
// must not call spotitml_set_log_callback.
package main
