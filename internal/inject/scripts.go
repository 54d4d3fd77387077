// Package inject holds the script bundle loaded into the controlled page.
//
// The web app keeps its whole object model inside webpack module closures;
// nothing is reachable from the outside until ExposeStore publishes it on a
// well-known global. Everything in this package is tied to the app's internal
// module layout and breaks whenever that layout changes, which is why callers
// treat ExposeStore failures as survivable.
package inject

// ExposeStore publishes the app's internal object store on window.Store.
// Evaluated as a single function body returning true on success.
const ExposeStore = `
() => {
	if (window.Store && window.Store.Msg) return true;

	window.webpackJsonp.push([
		['wabridge'],
		{ wabridge: (module, exports, req) => { window.__wbRequire = req; } },
		[['wabridge']]
	]);
	const req = window.__wbRequire;

	const find = (pred) => {
		for (const id of Object.keys(req.m)) {
			let mod;
			try { mod = req(id); } catch (e) { continue; }
			if (!mod) continue;
			if (pred(mod)) return mod;
			if (mod.default && pred(mod.default)) return mod.default;
		}
		return null;
	};

	const base = find(m => m.Chat && m.Msg);
	if (!base) throw new Error('wabridge: store modules not found');

	window.Store = Object.assign({}, base);
	window.Store.AppState = find(m => m.Socket && m.Socket.on) ?
		find(m => m.Socket && m.Socket.on).Socket :
		find(m => m.state && m.stream && m.on);
	window.Store.Conn = find(m => m.Conn && m.Conn.serialize).Conn;
	window.Store.Cmd = find(m => m.Cmd && m.Cmd.archiveChat).Cmd;
	window.Store.Invite = find(m => m.sendJoinGroupViaInvite || (m.default && m.default.sendJoinGroupViaInvite)) || find(m => m.Invite).Invite;
	window.Store.Wap = find(m => m.createGroup || m.sendSetStatus || m.queryExist);
	window.Store.MediaPrep = find(m => m.prepRawMedia);
	window.Store.UserConstructor = find(m => m.UserPrototype || (m.prototype && m.prototype.isServer && m.prototype.isUser));

	return true;
}
`

// Helpers installs the window.WBJS helper namespace used by the command
// bridge. Evaluated after window.Store is confirmed present.
const Helpers = `
() => {
	window.WBJS = {};

	window.WBJS.serializeMessage = (msg) => {
		if (!msg) return null;
		const m = msg.serialize();
		if (msg.mediaData) m.mediaData = msg.mediaData.serialize();
		return m;
	};

	window.WBJS.serializeChat = (chat) => {
		if (!chat) return null;
		const c = chat.serialize();
		c.id = chat.id._serialized || ('' + chat.id);
		c.isGroup = chat.isGroup === true;
		return c;
	};

	window.WBJS.serializeContact = (contact) => {
		if (!contact) return null;
		const c = contact.serialize();
		c.id = contact.id._serialized || ('' + contact.id);
		c.isBusiness = contact.isBusiness === true;
		c.isMe = contact.isMe === true;
		return c;
	};

	window.WBJS.getChats = () => window.Store.Chat.models.map(window.WBJS.serializeChat);

	window.WBJS.getChat = (chatId) => {
		const chat = window.Store.Chat.get(chatId);
		return window.WBJS.serializeChat(chat);
	};

	window.WBJS.getContacts = () => window.Store.Contact.models.map(window.WBJS.serializeContact);

	window.WBJS.getContact = (contactId) => {
		const contact = window.Store.Contact.get(contactId);
		return window.WBJS.serializeContact(contact);
	};

	// Resolves a bare destination into a canonical chat identity, or null.
	window.WBJS.getNumberId = async (id) => {
		const result = await window.Store.Wap.queryExist(id);
		if (!result || result.status === 404 || !result.jid) return null;
		return result.jid;
	};

	window.WBJS.sendSeen = async (chatId) => {
		const chat = window.Store.Chat.get(chatId);
		if (!chat) return false;
		await window.Store.Wap.sendConversationSeen(chat.id, chat.getLastMsgKeyForAction && chat.getLastMsgKeyForAction());
		return true;
	};

	window.WBJS.prepareContent = async (chat, content, options) => {
		const extra = {};
		let body = '';
		if (content.kind === 'text') {
			body = content.body || '';
		} else if (content.kind === 'media') {
			const media = await window.Store.MediaPrep.prepRawMedia({
				mimetype: content.mimetype,
				data: content.data,
				filename: content.filename || ''
			}, {});
			Object.assign(extra, media);
			body = content.caption || '';
		} else if (content.kind === 'location') {
			extra.type = 'location';
			extra.lat = content.lat;
			extra.lng = content.lng;
			extra.loc = content.description || '';
		}
		if (options.quotedMessageId) {
			const quoted = window.Store.Msg.get(options.quotedMessageId);
			if (quoted) extra.quotedMsg = quoted;
		}
		if (options.mentions && options.mentions.length) {
			extra.mentionedJidList = options.mentions;
		}
		return { body: body, extra: extra };
	};

	window.WBJS.sendToChat = async (chat, content, options) => {
		if (options.sendSeen) {
			await window.WBJS.sendSeen(chat.id._serialized || chat.id);
		}
		const prepared = await window.WBJS.prepareContent(chat, content, options);
		const sent = await chat.sendMessage(prepared.body, prepared.extra);
		const msg = window.Store.Msg.get(sent.id ? sent.id._serialized : sent);
		return window.WBJS.serializeMessage(msg || sent);
	};

	// sendMessage implements the full destination-reconciliation algorithm as
	// one script body so no concurrent evaluation can observe the borrowed
	// chat identity mid-flight.
	window.WBJS.sendMessage = async (chatId, content, options) => {
		const existing = window.Store.Chat.get(chatId);
		if (existing) {
			return window.WBJS.sendToChat(existing, content, options);
		}

		const resolved = await window.WBJS.getNumberId(chatId);
		if (!resolved || window.Store.Chat.models.length === 0) {
			return { wbError: 'no_chat_available' };
		}

		// Borrow the first chat's identity for the duration of the send,
		// restoring it before this evaluation returns.
		const donor = window.Store.Chat.models[0];
		const originalId = donor.id;
		donor.id = typeof resolved === 'string' && window.Store.UserConstructor ?
			new window.Store.UserConstructor(resolved) : resolved;
		try {
			return await window.WBJS.sendToChat(donor, content, options);
		} finally {
			donor.id = originalId;
		}
	};

	return true;
}
`

// BindListeners subscribes to the store's change notifications and forwards
// each one to the host bindings registered by the event bridge. Idempotent
// behind the __wbListening guard so a session never double-subscribes.
const BindListeners = `
() => {
	if (window.__wbListening) return true;
	window.__wbListening = true;

	window.Store.Msg.on('add', (msg) => {
		window.onWBMessageAdd(window.WBJS.serializeMessage(msg));
	});

	window.Store.Msg.on('change', (msg) => {
		window.onWBMessageChange(window.WBJS.serializeMessage(msg));
	});

	window.Store.Msg.on('change:type', (msg) => {
		window.onWBMessageTypeChange(window.WBJS.serializeMessage(msg));
	});

	window.Store.Msg.on('remove', (msg) => {
		window.onWBMessageRemove(window.WBJS.serializeMessage(msg));
	});

	window.Store.Msg.on('change:ack', (msg, ack) => {
		window.onWBMessageAck({ message: window.WBJS.serializeMessage(msg), ack: ack });
	});

	window.Store.AppState.on('change:state', (_appState, state) => {
		window.onWBAppStateChange({ state: state });
	});

	return true;
}
`

// RestoreStorage writes a flat object back into localStorage, used to resume
// a captured session before the app boots.
const RestoreStorage = `
(snapshot) => {
	try {
		Object.entries(snapshot || {}).forEach(([k, v]) => localStorage.setItem(k, v));
	} catch (e) {}
	return true;
}
`

// SerializeConn reads the connection/client descriptor.
const SerializeConn = `
() => window.Store.Conn.serialize()
`

// StoreReady is the predicate the bootstrap blocks on after the first
// injection pass.
const StoreReady = `
() => window.Store !== undefined && window.Store.Msg !== undefined
`
