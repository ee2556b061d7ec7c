package page

// Default probes for the messenger inbox. Both are overridable from config.
const (
	defaultLoggedInScript = `() => {
	const markers = [
		'[data-marker="header/username-button"]',
		'[data-marker="header/menu-profile"]',
		'[data-marker="channels/channel"]',
	];
	return markers.some((m) => document.querySelector(m) !== null);
}`

	defaultExtractScript = `() => {
	const text = (el, sel) => {
		const n = el.querySelector(sel);
		return n ? (n.innerText || n.textContent || '').trim() : '';
	};
	return Array.from(document.querySelectorAll('[data-marker="channels/channel"]')).map((el) => ({
		sender: text(el, '[data-marker="channels/user-title"]'),
		text: text(el, '[data-marker="channels/channel-message"]') || text(el, '[data-marker="channels/message-text"]'),
		time: text(el, '[data-marker="channels/channel-date"]'),
		unread: el.querySelector('[data-marker="channels/channel-unread"]') !== null
			|| el.getAttribute('data-unread') === 'true',
	}));
}`
)
